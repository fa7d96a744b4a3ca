package main

import "github.com/automatesecurity/masat/cmd/masat"

func main() { masat.Execute() }
