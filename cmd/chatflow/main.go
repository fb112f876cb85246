// Command chatflow validates, simulates and serves chatbot flows.
package main

func main() {
	Execute()
}
