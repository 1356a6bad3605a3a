// Command mdsubclient is a demonstration/debugging client: it connects a
// Subscriber to a running Publisher and prints every delivered message to
// stdout as it arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/veldra/mdcore/pkg/wire"
	"github.com/veldra/mdcore/pubsub/subscriber"
)

func main() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if err := run(os.Args[1:], sigCh); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(args []string, sigCh <-chan os.Signal) error {
	flagSet := flag.NewFlagSet("mdsubclient", flag.ContinueOnError)

	flagNetwork := flagSet.String("network", "tcp", `Publisher network: "unix" or "tcp"`)
	flagAddress := flagSet.String("address", "127.0.0.1:7777", "Publisher address")
	flagClientID := flagSet.Uint32("client-id", 1, "Subscriber client id")
	flagClientName := flagSet.String("client-name", "mdsubclient", "Subscriber client name")
	flagTopics := flagSet.String("topics", "all", `Comma-separated subset of "topic1,topic2,misc", or "all"`)

	if err := flagSet.Parse(args); err != nil {
		return err
	}

	mask, err := parseTopicMask(*flagTopics)
	if err != nil {
		return err
	}

	sub := subscriber.New(subscriber.Options{
		ClientID:   *flagClientID,
		ClientName: *flagClientName,
		Network:    *flagNetwork,
		Address:    *flagAddress,
		TopicMask:  mask,
		OnMessage:  printMessage,
	})

	sub.Start()
	defer sub.Stop()

	fmt.Printf("mdsubclient: connecting to %s:%s as %q\n", *flagNetwork, *flagAddress, *flagClientName)

	<-sigCh

	fmt.Println("mdsubclient: disconnecting")

	return nil
}

func printMessage(m subscriber.Message) {
	ts := time.Unix(0, m.Timestamp).UTC().Format(time.RFC3339Nano)

	fmt.Printf("[%s] topic=%s global_seq=%d topic_seq=%d data=%q\n",
		ts, topicName(m.Topic), m.GlobalSeq, m.TopicSeq, m.Data)
}

func topicName(topic uint32) string {
	switch topic {
	case wire.Topic1:
		return "topic1"
	case wire.Topic2:
		return "topic2"
	case wire.Misc:
		return "misc"
	default:
		return "topic(" + strconv.FormatUint(uint64(topic), 10) + ")"
	}
}

func parseTopicMask(spec string) (uint32, error) {
	if spec == "all" || spec == "" {
		return wire.AllTopics, nil
	}

	var mask uint32

	start := 0

	for i := 0; i <= len(spec); i++ {
		if i < len(spec) && spec[i] != ',' {
			continue
		}

		part := spec[start:i]
		start = i + 1

		switch part {
		case "topic1":
			mask |= wire.Topic1
		case "topic2":
			mask |= wire.Topic2
		case "misc":
			mask |= wire.Misc
		default:
			return 0, fmt.Errorf("unknown topic %q", part)
		}
	}

	return mask, nil
}
