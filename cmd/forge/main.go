package main

import "fmt"

func main() {
	printWelcome()
	Execute()
}

func printWelcome() {
	fmt.Println("\033[36m")
	fmt.Println("   ███████╗ ██████╗ ██████╗  ██████╗ ███████╗")
	fmt.Println("   ██╔════╝██╔═══██╗██╔══██╗██╔════╝ ██╔════╝")
	fmt.Println("   █████╗  ██║   ██║██████╔╝██║  ███╗█████╗  ")
	fmt.Println("   ██╔══╝  ██║   ██║██╔══██╗██║   ██║██╔══╝  ")
	fmt.Println("   ██║     ╚██████╔╝██║  ██║╚██████╔╝███████╗")
	fmt.Println("   ╚═╝      ╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚══════╝")
	fmt.Println("\033[0m")
	fmt.Println("\033[90m   Tamper-evident operational audit log\033[0m")
}
