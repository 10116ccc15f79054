package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus/push"
)

// ClientJob is the Pushgateway job name used by the delivery client
const ClientJob = "ride-client"

// PushClient sends the delivery client's counters to the Pushgateway at url,
// replacing whatever the job pushed before.
func PushClient(url string) error {
	err := push.New(url, ClientJob).
		Collector(CounterDeliveryOutcomes).
		Collector(CounterSourceMalformedLines).
		Push()
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
