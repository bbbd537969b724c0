// Command depgate analyzes npm/PyPI/Maven/NuGet dependencies for
// supply-chain risk and gates them against a configurable policy.
package main

func main() {
	Execute()
}
