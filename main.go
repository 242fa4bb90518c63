package main

import "github.com/collabrixo/collabrixo/cmd"

func main() {
	cmd.Execute()
}
