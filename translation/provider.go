// Package translation defines the translation provider interface.
package translation

import (
	"context"

	"github.com/skillsenselab/scribed/capability"
)

// Provider is the interface that translation backends must implement.
type Provider interface {
	capability.Provider // embeds Name() and IsAvailable()

	// Translate converts text from sourceLang to targetLang.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
