package main

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

// selectMenu shows items with an arrow-key cursor and returns the chosen
// index, or -1 when stdin is not a terminal.
func selectMenu(prompt string, items []string) int {
	if len(items) == 0 {
		return -1
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error setting raw mode: %v\r\n", err)
		return -1
	}
	defer term.Restore(fd, oldState)

	selected := 0
	render := func() {
		for i, item := range items {
			fmt.Print("\033[2K\r")
			if i == selected {
				fmt.Printf("> %s\r\n", item)
			} else {
				fmt.Printf("  %s\r\n", item)
			}
		}
	}

	fmt.Printf("%s\r\n", prompt)
	render()

	buf := make([]byte, 3)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil {
			return selected
		}

		if n == 1 {
			switch buf[0] {
			case 0x0D, 0x0A: // Enter
				fmt.Printf("\r\n")
				return selected
			case 0x03, 'q': // Ctrl-C
				term.Restore(fd, oldState)
				fmt.Printf("\r\n")
				os.Exit(0)
			}
			continue
		}
		if n != 3 || buf[0] != 0x1B || buf[1] != '[' {
			continue
		}

		prev := selected
		switch buf[2] {
		case 'A': // Up arrow
			if selected > 0 {
				selected--
			}
		case 'B': // Down arrow
			if selected < len(items)-1 {
				selected++
			}
		}
		if selected != prev {
			fmt.Printf("\033[%dA", len(items))
			render()
		}
	}
}

// confirm asks a yes/no question on a terminal. Anything but y is no.
func confirm(question string) bool {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return true
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return false
	}
	defer term.Restore(fd, oldState)

	fmt.Printf("%s [y/N] ", question)
	buf := make([]byte, 1)
	if _, err := os.Stdin.Read(buf); err != nil {
		fmt.Printf("\r\n")
		return false
	}
	fmt.Printf("%c\r\n", buf[0])
	return buf[0] == 'y' || buf[0] == 'Y'
}
