package main

import "github.com/surge-downloader/batchget/cmd"

func main() {
	cmd.Execute()
}
