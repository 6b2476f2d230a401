// Package editorsync bridges an editing surface and the session registry.
//
// The surface reports every content change, including the ones caused by
// content the controller itself pushed in. The controller raises a guard
// before each push and discards notifications until the surface has settled,
// so opening a file, switching tabs or restoring a snapshot never marks a
// session dirty by accident.
package editorsync

// Surface is the editing widget. Calls happen on the event loop and
// notifications must be delivered there too.
type Surface interface {
	Initialize(content string) error
	ReplaceContent(content string) error
	OnContentChanged(fn func(content string))
	Destroy()
}

// Settler is implemented by surfaces that can acknowledge a replacement once
// every notification it caused has been emitted. The controller then lowers
// its guard on the acknowledgment instead of after a fixed delay.
type Settler interface {
	ReplaceContentSettled(content string, settled func()) error
}

// PushOptions controls PushContent.
type PushOptions struct {
	// AsExternalUpdate replaces content without dirtying the session.
	AsExternalUpdate bool
}
