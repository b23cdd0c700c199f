// Package main is the datalogger command line.
package main

func main() {
	Execute()
}
