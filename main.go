// main.go
package main

import "github.com/gewnthar/registers/commands"

func main() {
	commands.Execute()
}
