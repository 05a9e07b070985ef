package common

import (
	"github.com/atotto/clipboard"
)

// SetClipboardValue copies value to the system clipboard.
func SetClipboardValue(value string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnsupported
	}
	return clipboard.WriteAll(value)
}
