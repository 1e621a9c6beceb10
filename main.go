package main

import "github.com/vibast-solutions/ms-go-filedrop/cmd"

func main() {
	cmd.Execute()
}
