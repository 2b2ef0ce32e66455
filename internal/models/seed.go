package models

import "time"

// SeedRobots returns the demo fleet.
func SeedRobots(now time.Time) []Robot {
	return []Robot{
		{ID: "robot_R07", Name: "R-07", Status: RobotStatusEnRoute, Battery: 72, Floor: 2,
			Pose: Pose{X: 120, Y: 180, Theta: 1.57}, LocalizationConfidence: 0.95,
			CurrentTaskID: "task_001", LastSeen: now, Speed: 0.8},
		{ID: "robot_R08", Name: "R-08", Status: RobotStatusIdle, Battery: 98, Floor: 1,
			Pose: Pose{X: 80, Y: 120, Theta: 0.2}, LocalizationConfidence: 0.99, LastSeen: now},
		{ID: "robot_R09", Name: "R-09", Status: RobotStatusCharging, Battery: 45, Floor: 1,
			Pose: Pose{X: 50, Y: 50}, LocalizationConfidence: 0.97, LastSeen: now},
		{ID: "robot_R10", Name: "R-10", Status: RobotStatusEnRoute, Battery: 85, Floor: 3,
			Pose: Pose{X: 200, Y: 150, Theta: 3.14}, LocalizationConfidence: 0.92,
			CurrentTaskID: "task_003", LastSeen: now, Speed: 1.2},
		{ID: "robot_R11", Name: "R-11", Status: RobotStatusError, Battery: 60, Floor: 2,
			Pose: Pose{X: 150, Y: 100, Theta: 0.5}, LocalizationConfidence: 0.75,
			LastSeen: now.Add(-5 * time.Minute)},
	}
}

// SeedTasks returns the demo task backlog. The in-progress tasks match the
// robots returned by SeedRobots.
func SeedTasks(now time.Time) []Task {
	eta1, eta3 := 8.0, 3.0
	completed := now.Add(-50 * time.Minute)
	return []Task{
		{ID: "task_001", Requester: "u_clinician", FromZone: "Pharmacy", ToZone: "Ward 5B",
			Priority: PriorityHigh, Payload: "Medication", Status: TaskStatusInProgress,
			AssignedRobot: "robot_R07", CreatedAt: now.Add(-10 * time.Minute), ETAMinutes: &eta1,
			Notes: "Urgent insulin delivery"},
		{ID: "task_002", Requester: "u_clinician", FromZone: "Laboratory", ToZone: "Ward 3A",
			Priority: PriorityNormal, Payload: "Sample", Status: TaskStatusQueued,
			CreatedAt: now.Add(-5 * time.Minute)},
		{ID: "task_003", Requester: "u_operator", FromZone: "Storage Room", ToZone: "ICU",
			Priority: PriorityCritical, Payload: "Equipment", Status: TaskStatusInProgress,
			AssignedRobot: "robot_R10", CreatedAt: now.Add(-15 * time.Minute), ETAMinutes: &eta3},
		{ID: "task_004", Requester: "u_clinician", FromZone: "Pharmacy", ToZone: "Emergency Room",
			Priority: PriorityHigh, Payload: "Medication", Status: TaskStatusCompleted,
			AssignedRobot: "robot_R08", CreatedAt: now.Add(-time.Hour), CompletedAt: &completed},
	}
}

// SeedAlerts returns the demo alert history, newest first.
func SeedAlerts(now time.Time) []Alert {
	return []Alert{
		{ID: "alert_102", RobotID: "robot_R11", Severity: SeverityCritical,
			Message: "Wheel slip detected - Robot stopped", Timestamp: now.Add(-time.Minute)},
		{ID: "alert_101", RobotID: "robot_R07", Severity: SeverityWarning,
			Message: "Low localization confidence in Corridor B (75%)", Timestamp: now.Add(-3 * time.Minute)},
		{ID: "alert_103", RobotID: "robot_R09", Severity: SeverityInfo,
			Message: "Battery low - Returning to charging station", Timestamp: now.Add(-10 * time.Minute),
			Acknowledged: true},
	}
}

// SeedFloorMaps returns the demo facility.
func SeedFloorMaps() []FloorMap {
	rect := func(x0, y0, x1, y1 float64) [][]float64 {
		return [][]float64{{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}}
	}
	return []FloorMap{
		{MapID: "floor1_v1", Floor: 1, Name: "Ground Floor", Zones: []Zone{
			{ID: "lobby", Type: "corridor", Name: "Main Lobby", Polygon: rect(20, 20, 180, 80), Access: "public", Floor: 1},
			{ID: "pharmacy", Type: "pharmacy", Name: "Pharmacy", Polygon: rect(200, 20, 280, 100), Access: "staff_only", Floor: 1},
			{ID: "storage", Type: "storage", Name: "Storage Room", Polygon: rect(20, 100, 80, 180), Access: "restricted", Floor: 1},
			{ID: "elevator1", Type: "elevator", Name: "Elevator A", Polygon: rect(140, 160, 180, 200), Access: "public", Floor: 1},
		}},
		{MapID: "floor2_v1", Floor: 2, Name: "Ward Floor", Zones: []Zone{
			{ID: "ward5b", Type: "clinical", Name: "Ward 5B", Polygon: rect(20, 20, 120, 100), Access: "staff_only", Floor: 2},
			{ID: "ward5a", Type: "clinical", Name: "Ward 5A", Polygon: rect(140, 20, 240, 100), Access: "staff_only", Floor: 2},
			{ID: "icu", Type: "restricted", Name: "ICU", Polygon: rect(20, 120, 100, 200), Access: "restricted", Floor: 2},
			{ID: "corridor2", Type: "corridor", Name: "Main Corridor", Polygon: rect(100, 100, 240, 120), Access: "public", Floor: 2},
		}},
		{MapID: "floor3_v1", Floor: 3, Name: "Lab Floor", Zones: []Zone{
			{ID: "lab", Type: "clinical", Name: "Laboratory", Polygon: rect(20, 20, 150, 120), Access: "restricted", Floor: 3},
			{ID: "ward3a", Type: "clinical", Name: "Ward 3A", Polygon: rect(170, 20, 280, 120), Access: "staff_only", Floor: 3},
			{ID: "er", Type: "clinical", Name: "Emergency Room", Polygon: rect(20, 140, 150, 220), Access: "restricted", Floor: 3},
		}},
	}
}
