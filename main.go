package main

import "github.com/lepinkainen/backlogsync/cmd"

var execute = cmd.Execute

func main() {
	execute()
}
