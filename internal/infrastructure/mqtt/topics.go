package mqtt

import "fmt"

// TopicPrefixDevice is the base of every Bambu LAN-mode topic.
const TopicPrefixDevice = "device"

// Topics provides builders for the printer's MQTT topics.
//
//	topics := mqtt.Topics{}
//	report := topics.PrinterReport("01S00A000000000")
//	// Returns: "device/01S00A000000000/report"
type Topics struct{}

// PrinterReport returns the topic on which the printer publishes job reports.
//
// Example: device/01S00A000000000/report
func (Topics) PrinterReport(serial string) string {
	return fmt.Sprintf("%s/%s/report", TopicPrefixDevice, serial)
}

// PrinterRequest returns the topic that accepts commands for the printer.
//
// Example: device/01S00A000000000/request
func (Topics) PrinterRequest(serial string) string {
	return fmt.Sprintf("%s/%s/request", TopicPrefixDevice, serial)
}
