package main

import "github.com/fatih/color"

// UI helpers for standardized CLI output, adapted from the teacher's
// utils_ui.go.

func printSuccess(format string, a ...interface{}) {
	color.Green("✔ "+format, a...)
}

func printError(format string, a ...interface{}) {
	color.Red("✖ "+format, a...)
}

func printInfo(format string, a ...interface{}) {
	color.Cyan("ℹ "+format, a...)
}

func printWarning(format string, a ...interface{}) {
	color.Yellow("⚠ "+format, a...)
}
