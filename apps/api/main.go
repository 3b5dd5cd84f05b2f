package main

import (
	_ "expvar"         // register /debug/vars
	_ "net/http/pprof" // register /debug/pprof
)

func main() {
	startWithDig()
}
