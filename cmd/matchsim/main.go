// matchsim publishes a simulated match to the command topic: a startMatch,
// a live stream of newEvent commands with a configurable fraction dropped
// to mimic the peer being out of range, then a matchEndedFromWatch full
// sync carrying the complete log. Pointing it at a running syncd exercises
// the whole reconciliation path end to end.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/xinchenjiangau/PickUpSoccer/internal/domain"
	"github.com/xinchenjiangau/PickUpSoccer/internal/protocol"
)

var playerNames = []string{
	"Mateo", "Lucas", "Diego", "Marco", "Leo", "Nico", "Iker", "Bruno", "Theo", "Enzo",
	"Pablo", "Hugo", "Dani", "Alvaro", "Sergi", "Raul", "Jordi", "Oscar", "Victor", "Adrian",
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "match-commands", "Kafka topic")
	playersPerSide := flag.Int("players", 5, "Players per side")
	eventCount := flag.Int("events", 30, "Number of live events to generate")
	interval := flag.Duration("interval", 200*time.Millisecond, "Delay between live events")
	dropRate := flag.Int("drop", 20, "Percent of live events withheld until the final full sync")
	flag.Parse()

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  Match Simulator")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:       %s\n", *brokers)
	fmt.Printf("  Topic:         %s\n", *topic)
	fmt.Printf("  Players/side:  %d\n", *playersPerSide)
	fmt.Printf("  Live events:   %d\n", *eventCount)
	fmt.Printf("  Drop rate:     %d%%\n", *dropRate)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	matchID := uuid.New()

	// Send message helper; all commands of one match share a key so they
	// land on one partition and keep their order
	sendCommand := func(cmd protocol.Command) {
		data, err := json.Marshal(protocol.Encode(cmd))
		if err != nil {
			log.Printf("Failed to marshal command: %v", err)
			return
		}
		producer.Input() <- &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(matchID.String()),
			Value: sarama.ByteEncoder(data),
		}
	}

	// Build the roster
	var roster []protocol.RosterPlayer
	for i := 0; i < *playersPerSide*2; i++ {
		roster = append(roster, protocol.RosterPlayer{
			ID:         uuid.New(),
			Name:       playerNames[i%len(playerNames)],
			IsHomeTeam: i < *playersPerSide,
		})
	}

	fmt.Printf("Starting match %s\n", matchID)
	sendCommand(protocol.StartMatch{
		MatchID:         matchID,
		HomeTeamName:    "Red Bibs",
		AwayTeamName:    "Blue Bibs",
		Location:        "Riverside Pitch 2",
		DurationMinutes: 60,
		Players:         roster,
	})

	// Live event stream. Dropped events never go out as newEvent but are
	// kept for the final full sync, the same shape a flaky peer link
	// produces in the field.
	kinds := []domain.EventKind{
		domain.EventKindGoal, domain.EventKindGoal, domain.EventKindGoal,
		domain.EventKindSave, domain.EventKindSave,
		domain.EventKindFoul, domain.EventKindFoul,
		domain.EventKindYellowCard,
		domain.EventKindRedCard,
	}

	var fullLog []protocol.WireEvent
	homeScore, awayScore := 0, 0
	delivered, dropped := 0, 0
	start := time.Now()

	for i := 0; i < *eventCount; i++ {
		kind := kinds[rand.Intn(len(kinds))]
		side := rand.Intn(2) == 0
		primary := pickPlayer(roster, side)
		secondary := uuid.Nil
		if kind == domain.EventKindGoal && rand.Intn(100) < 60 {
			secondary = pickOther(roster, side, primary)
		}
		ts := start.Add(time.Duration(i) * time.Minute)

		if kind == domain.EventKindGoal {
			if side {
				homeScore++
			} else {
				awayScore++
			}
		}

		fullLog = append(fullLog, protocol.WireEvent{
			EventKind:   kind,
			Timestamp:   ts,
			IsHomeTeam:  side,
			PrimaryID:   primary,
			SecondaryID: secondary,
		})

		if rand.Intn(100) < *dropRate {
			dropped++
			continue
		}

		sendCommand(protocol.NewEvent{
			MatchID:     matchID,
			EventKind:   kind,
			Timestamp:   ts,
			PrimaryID:   primary,
			SecondaryID: secondary,
		})
		delivered++
		time.Sleep(*interval)
	}
	fmt.Printf("Live stream done: %d delivered, %d withheld\n", delivered, dropped)

	// Final full sync carries every event, including the withheld ones
	sendCommand(protocol.MatchEnded{
		MatchID:   matchID,
		HomeScore: homeScore,
		AwayScore: awayScore,
		Events:    fullLog,
		FromWatch: true,
	})
	fmt.Printf("Match ended %d-%d with %d events in the log\n", homeScore, awayScore, len(fullLog))

	producer.AsyncClose()
	wg.Wait()
	fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n", atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
}

// pickPlayer returns a random player of one side
func pickPlayer(roster []protocol.RosterPlayer, home bool) uuid.UUID {
	for {
		p := roster[rand.Intn(len(roster))]
		if p.IsHomeTeam == home {
			return p.ID
		}
	}
}

// pickOther returns a random teammate distinct from the given player, or
// uuid.Nil when the side has nobody else.
func pickOther(roster []protocol.RosterPlayer, home bool, exclude uuid.UUID) uuid.UUID {
	var candidates []uuid.UUID
	for _, p := range roster {
		if p.IsHomeTeam == home && p.ID != exclude {
			candidates = append(candidates, p.ID)
		}
	}
	if len(candidates) == 0 {
		return uuid.Nil
	}
	return candidates[rand.Intn(len(candidates))]
}
