// Command workconnectctl runs operational tasks against the WorkConnect store.
package main

import "os"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
