// Package scripts embeds the page-side helpers the browser session evaluates.
// Each file is a single function expression; callers invoke it with a JSON
// argument object.
package scripts

import (
	_ "embed"
	"fmt"
)

var (
	//go:embed list_messages.js
	ListMessages string
	//go:embed element_center.js
	ElementCenter string
	//go:embed find_button.js
	FindButton string
	//go:embed mark_copy_buttons.js
	MarkCopyButtons string
	//go:embed read_input.js
	ReadInput string
	//go:embed clipboard_patch.js
	ClipboardPatch string
	//go:embed clipboard_restore.js
	ClipboardRestore string
)

// All returns every embedded script keyed by file name.
func All() map[string]string {
	return map[string]string{
		"list_messages.js":     ListMessages,
		"element_center.js":    ElementCenter,
		"find_button.js":       FindButton,
		"mark_copy_buttons.js": MarkCopyButtons,
		"read_input.js":        ReadInput,
		"clipboard_patch.js":   ClipboardPatch,
		"clipboard_restore.js": ClipboardRestore,
	}
}

// Validate reports an embedded script that failed to load.
func Validate() error {
	for name, src := range All() {
		if src == "" {
			return fmt.Errorf("embedded %s is empty or failed to load", name)
		}
	}
	return nil
}
