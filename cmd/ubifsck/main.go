// Command ubifsck checks and repairs a UBIFS volume.
package main

import "github.com/ubifsck/ubifsck/cmd"

func main() {
	cmd.Execute()
}
