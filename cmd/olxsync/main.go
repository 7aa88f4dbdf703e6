// Command olxsync discovers marketplace job listings for configured
// clients, extracts contact details, and syncs them into GoHighLevel.
package main

func main() {
	Execute()
}
