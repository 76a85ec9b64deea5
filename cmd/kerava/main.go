// Kerava - Multi-Account Cloud Resource Inventory
// Collect. Query. Act.
package main

func main() {
	Execute()
}
