package cli

import "github.com/spf13/cobra"

// Mainify wraps an error-returning Cobra run function into the
// standard Cobra signature, so the inner function can use defer-based
// cleanup (which wouldn't run if it terminated the process directly).
func Mainify(entry func(*cobra.Command, []string) error) func(*cobra.Command, []string) {
	return func(command *cobra.Command, arguments []string) {
		if err := entry(command, arguments); err != nil {
			Fatal(err)
		}
	}
}
