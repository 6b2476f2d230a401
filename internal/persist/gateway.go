// Package persist is the contract between the session core and durable
// storage, native dialogs and user notifications.
package persist

import (
	"context"
	"errors"
	"log/slog"
)

// ErrCancelled is returned by a Prompter when the user dismisses the dialog.
var ErrCancelled = errors.New("cancelled by user")

// Severity ranks a user notification.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Documents reads and writes document text.
type Documents interface {
	ReadDocument(ctx context.Context, path string) (string, error)
	WriteDocument(ctx context.Context, path, content string) error
}

// Prompter asks the user for paths. Both methods return ErrCancelled when
// the user backs out.
type Prompter interface {
	PromptOpenPath(ctx context.Context) (string, error)
	PromptSavePath(ctx context.Context, suggestedName string) (string, error)
}

// Choice is the answer to a close confirmation.
type Choice int

const (
	ChoiceCancel Choice = iota
	ChoiceSave
	ChoiceDontSave
)

func (c Choice) String() string {
	switch c {
	case ChoiceSave:
		return "save"
	case ChoiceDontSave:
		return "dont-save"
	default:
		return "cancel"
	}
}

// Confirmer asks whether unsaved changes should be saved before a document
// is closed.
type Confirmer interface {
	ConfirmClose(ctx context.Context, displayName string) (Choice, error)
}

// Notifier surfaces a recoverable problem or status message to the user.
type Notifier interface {
	NotifyUser(message string, severity Severity)
}

// Gateway is everything the workspace needs from the outside world.
type Gateway interface {
	Documents
	Prompter
	Notifier
}

type gateway struct {
	Documents
	Prompter
	Notifier
}

// NewGateway assembles a Gateway from its parts.
func NewGateway(docs Documents, prompter Prompter, notifier Notifier) Gateway {
	return gateway{Documents: docs, Prompter: prompter, Notifier: notifier}
}

// LogNotifier writes notifications to a structured logger. It is the
// fallback when no interactive shell is attached.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) NotifyUser(message string, severity Severity) {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	level := slog.LevelInfo
	switch severity {
	case SeverityWarning:
		level = slog.LevelWarn
	case SeverityError:
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, message, "notify", true)
}

// NoPrompt is a Prompter and Confirmer for non-interactive use: every
// prompt is cancelled.
type NoPrompt struct{}

func (NoPrompt) ConfirmClose(context.Context, string) (Choice, error) { return ChoiceCancel, nil }

func (NoPrompt) PromptOpenPath(context.Context) (string, error) { return "", ErrCancelled }
func (NoPrompt) PromptSavePath(context.Context, string) (string, error) {
	return "", ErrCancelled
}
