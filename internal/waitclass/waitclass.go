// Package waitclass maps session wait events to coarse wait classes.
package waitclass

import (
	"strings"

	"github.com/ITNoesis/pas/internal/series"
)

// Wait classes produced by Default.
const (
	CPU       = "CPU"
	Lock      = "Lock"
	LWLock    = "LWLock"
	IO        = "IO"
	Client    = "Client"
	IPC       = "IPC"
	Timeout   = "Timeout"
	BufferPin = "BufferPin"
	Extension = "Extension"
	Activity  = "Activity"
	Idle      = "Idle"
	Other     = "Other"
)

// Classes lists every class Default can return, in display order.
var Classes = []string{CPU, Lock, LWLock, IO, Client, IPC, Timeout, BufferPin, Extension, Activity, Idle, Other}

// Classifier assigns a wait class to a session.
type Classifier interface {
	Classify(s series.Session) string
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(s series.Session) string

// Classify calls f(s).
func (f ClassifierFunc) Classify(s series.Session) string { return f(s) }

var byEventType = map[string]string{
	"lock":          Lock,
	"lwlock":        LWLock,
	"lwlocknamed":   LWLock,
	"lwlocktranche": LWLock,
	"io":            IO,
	"client":        Client,
	"ipc":           IPC,
	"timeout":       Timeout,
	"bufferpin":     BufferPin,
	"extension":     Extension,
	"activity":      Activity,
}

// Default classifies by wait event type. A session in state "idle" is Idle
// and a non-idle session without a wait event is on CPU.
var Default Classifier = ClassifierFunc(func(s series.Session) string {
	if strings.EqualFold(s.State, "idle") {
		return Idle
	}
	if s.WaitEventType == "" {
		return CPU
	}
	if c, ok := byEventType[strings.ToLower(s.WaitEventType)]; ok {
		return c
	}
	return Other
})

// Apply sets WaitClass on every session using c and returns sessions.
func Apply(sessions []series.Session, c Classifier) []series.Session {
	if c == nil {
		c = Default
	}
	for i := range sessions {
		sessions[i].WaitClass = c.Classify(sessions[i])
	}
	return sessions
}

// Tally counts sessions per wait class. Idle sessions are not counted.
// Every class in Classes except Idle is present in the result.
func Tally(sessions []series.Session, c Classifier) map[string]float64 {
	if c == nil {
		c = Default
	}
	out := make(map[string]float64, len(Classes))
	for _, class := range Classes {
		if class != Idle {
			out[class] = 0
		}
	}
	for i := range sessions {
		class := c.Classify(sessions[i])
		if class == Idle {
			continue
		}
		out[class]++
	}
	return out
}
