package main

import "docshare/cmd"

func main() {
	cmd.Execute()
}
