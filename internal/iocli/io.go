// Package iocli implements console input and output for the admin commands.
package iocli

// IO abstracts console interaction so commands can be driven from tests.
type IO interface {
	Println(a ...any)
	Printf(format string, a ...any)
	ReadPassword(prompt string) (string, error)
}
