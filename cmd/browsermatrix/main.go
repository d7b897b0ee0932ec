// Command browsermatrix runs browser test cases across a matrix of remote
// environments in parallel.
package main

func main() {
	Execute()
}
