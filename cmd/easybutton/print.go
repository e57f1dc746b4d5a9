package main

import (
	"fmt"
	"io"

	"github.com/sweeney/easybutton/internal/button"
	"github.com/sweeney/easybutton/internal/config"
	"github.com/sweeney/easybutton/internal/gpio"
	"github.com/sweeney/easybutton/internal/status"
)

// printLevels writes one line per button with its current logical state.
func printLevels(w io.Writer, cfg config.Config, bank gpio.Bank) error {
	for _, b := range cfg.Buttons {
		in := bank.Input(b.Line)
		if in == nil {
			return fmt.Errorf("button %q: line %d was not opened", b.Name, b.Line)
		}
		active := in.Level() == (b.Polarity() == button.ActiveHigh)
		fmt.Fprintf(w, "%s (line %d, %s): %s\n", b.Name, b.Line, b.Polarity(), status.StateString(active))
	}
	return nil
}
