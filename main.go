package main

import "github.com/qrave1/CareCall/cmd"

func main() {
	cmd.Execute()
}
