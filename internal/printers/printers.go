package printers

import (
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

var defaultPrinters = Printers{}

type IPrinters interface {
	Confirm(message string) bool
}

type Printers struct{}

// NewPrinters returns new printers struct
func NewPrinters() *Printers {
	return &Printers{}
}

func (p Printers) Confirm(message string) bool {
	prompt := promptui.Prompt{
		Label:    message + " Press (y/n)",
		Validate: validateYesNo,
	}

	result, err := prompt.Run()
	if err != nil {
		return false
	}
	return isYes(result)
}

// Confirm prompt a confirmation message
//
// Return true if the user entered Y/y and false if entered n/N
func Confirm(message string) bool {
	return defaultPrinters.Confirm(message)
}

func validateYesNo(input string) error {
	input = strings.ToLower(strings.TrimSpace(input))
	if input != "y" && input != "n" {
		return fmt.Errorf("wrong input %s, was expecting `y` or `n`", input)
	}
	return nil
}

func isYes(input string) bool {
	return strings.ToLower(strings.TrimSpace(input)) == "y"
}
