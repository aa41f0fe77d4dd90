package config

// Symptom pairs an observed tuning problem with the checks that usually fix
// it. Severity is one of "red", "orange", "yellow".
type Symptom struct {
	Name     string
	Checks   []string
	Severity string
}

var Symptoms = []Symptom{
	{"Fast Oscillation (>1 Hz)", []string{
		"Reduce P-gain (try 0.05)",
		"Increase DEADBAND (try 15-20)",
		"Check VFD torque boost is OFF (P72=0)",
	}, "orange"},
	{"Slow Oscillation (0.1-0.5 Hz)", []string{
		"Disable VFD torque boost (P72=0)",
		"Reduce I-gain (try 0.8)",
		"Verify limit2 is working (check signals)",
	}, "orange"},
	{"Overshoot on Speed Changes", []string{
		"Verify limit2.maxv matches VFD accel time",
		"Reduce FF1 (try 0.3)",
		"Check RateLimit = 1800 / VFD_accel_seconds",
	}, "yellow"},
	{"Slow Load Recovery (>2s)", []string{
		"Increase I-gain (try 1.2-1.5)",
		"Increase MaxErrorI proportionally",
		"Check VFD slip compensation setting",
	}, "yellow"},
	{"Speed Not Reaching Target", []string{
		"Check VFD P0.04 >= 62 Hz",
		"Verify VFD_SCALE matches motor",
		"Check MaxErrorI allows enough correction",
		"Verify analog output reaches VFD",
	}, "red"},
	{"Steady-State Error (10+ RPM)", []string{
		"Increase I-gain slightly",
		"Reduce DEADBAND if too high",
		"Check encoder scale is correct (4096)",
	}, "yellow"},
	{"Hunting at Low Speed (<200 RPM)", []string{
		"Increase DEADBAND (try 15-20)",
		"Check DPLL is configured",
		"Verify encoder vel-timeout = 0.1",
	}, "orange"},
	{"No Encoder Counts", []string{
		"Check encoder wiring (A, B, Z, 5V, GND)",
		"Verify 5V power at encoder",
		"Try filter=0 temporarily",
		"Check Mesa encoder counter increment",
	}, "red"},
	{"VFD Faults on Start", []string{
		"Increase VFD accel time to 2-3s",
		"Reduce FF1 (try 0.25)",
		"Check for overcurrent (motor wiring)",
		"Verify VFD current limit settings",
	}, "red"},
	{"Integrator Windup", []string{
		"Reduce MaxErrorI to 50",
		"Verify limit2 is active (check signal path)",
		"Check for large sustained errors",
	}, "yellow"},
	{"Reverse Runaway (M4)", []string{
		"Verify ABS component in signal path",
		"Check spindle-vel-fb-rpm-abs always positive",
		"Test with M4 S100 and monitor feedback",
		"Fix encoder polarity if needed",
	}, "red"},
}

// ChecklistItem is one line of a commissioning or hardware checklist
type ChecklistItem struct {
	Key  string
	Text string
}

var HardwareChecklist = []ChecklistItem{
	{"encoder_jumpers", "Mesa 7i76E encoder jumpers W10, W11, W13 = RIGHT position (differential mode)"},
	{"encoder_shield", "Encoder cable shield grounded at Mesa end ONLY (not at encoder)"},
	{"cable_routing", "Encoder cables routed away from VFD power cables"},
	{"vfd_analog", "VFD analog input verified: 0V=0 RPM, 10V=1800 RPM"},
	{"estop_wired", "E-stop properly wired and cuts ALL power (spindle, drives)"},
	{"encoder_5v", "Encoder 5V power verified at encoder connector"},
	{"vfd_params", "VFD parameters set: P0.04>=62Hz, P0.11=1.5s accel, P72=0 (no torque boost)"},
	{"spindle_free", "Spindle rotates freely by hand (no binding or rubbing)"},
	{"work_area", "Work area clear, safety glasses on, no loose clothing"},
}

var CommissioningChecklist = []ChecklistItem{
	{"soft_limits", "Soft limits configured and tested"},
	{"estop_tested", "E-stop tested: cuts all motion AND spindle immediately"},
	{"encoder_watchdog", "Encoder watchdog tested: E-stops within 1s when encoder disconnected"},
	{"vfd_fault", "VFD fault triggers E-stop"},
	{"bypass_removed", "Any drives-ok bypasses REMOVED from custom.hal"},
	{"pid_stable", "PID tuning stable: no oscillation, good load recovery"},
	{"config_backed_up", "Final configuration saved and backed up (INI, HAL files, profile)"},
}
