package main

import "salesadmin/cmd/permctl/cmd"

func main() {
	cmd.Execute()
}
