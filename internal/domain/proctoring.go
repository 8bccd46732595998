package domain

import "time"

// ProctoringEventType is the closed set of recognized event types.
type ProctoringEventType string

const (
	EventMultipleFaces    ProctoringEventType = "multiple_faces"
	EventDeviceDetected   ProctoringEventType = "device_detected"
	EventExternalScreen   ProctoringEventType = "external_screen"
	EventCopyPaste        ProctoringEventType = "copy_paste"
	EventDevTools         ProctoringEventType = "dev_tools"
	EventTabSwitch        ProctoringEventType = "tab_switch"
	EventNoFace           ProctoringEventType = "no_face"
	EventKeyboardShortcut ProctoringEventType = "keyboard_shortcut"
	EventIdleLong         ProctoringEventType = "idle_long"
	EventSuspicious       ProctoringEventType = "suspicious"
	EventFullscreenExit   ProctoringEventType = "fullscreen_exit"
	EventWindowBlur       ProctoringEventType = "window_blur"
	EventFaceNotCentered  ProctoringEventType = "face_not_centered"
	EventRightClick       ProctoringEventType = "right_click"
	EventBrowserResize    ProctoringEventType = "browser_resize"
)

// Severity classifies a proctoring event.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// eventSeverity is the fixed type→severity mapping.
var eventSeverity = map[ProctoringEventType]Severity{
	EventMultipleFaces:    SeverityHigh,
	EventDeviceDetected:   SeverityHigh,
	EventExternalScreen:   SeverityHigh,
	EventCopyPaste:        SeverityHigh,
	EventDevTools:         SeverityHigh,
	EventTabSwitch:        SeverityMedium,
	EventNoFace:           SeverityMedium,
	EventKeyboardShortcut: SeverityMedium,
	EventIdleLong:         SeverityMedium,
	EventSuspicious:       SeverityMedium,
	EventFullscreenExit:   SeverityMedium,
	EventWindowBlur:       SeverityLow,
	EventFaceNotCentered:  SeverityLow,
	EventRightClick:       SeverityLow,
	EventBrowserResize:    SeverityLow,
}

// ValidEventType reports whether t is a recognized proctoring event type.
func ValidEventType(t ProctoringEventType) bool {
	_, ok := eventSeverity[t]
	return ok
}

// SeverityForEvent derives the severity for an event type.
func SeverityForEvent(t ProctoringEventType) Severity {
	if s, ok := eventSeverity[t]; ok {
		return s
	}
	return SeverityLow
}

// ProctoringEvent is an append-only classification record. Immutable except
// admin review fields.
type ProctoringEvent struct {
	ID                   string
	CandidateAssessmentID string
	Type                 ProctoringEventType
	Severity             Severity
	OccurredAt           time.Time
	ScreenshotRef        string
	Evidence             map[string]any
	Section              Section
	QuestionID           string
	AdminReviewed        bool
	AdminNote            string
	ReviewedBy           string
	ReviewedAt           *time.Time
}
