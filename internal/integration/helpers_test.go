//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"

	"github.com/couchcryptid/gelap-etl/internal/domain"
)

const t0 int64 = 1672531200000

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker and returns its address.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, "confluentinc/confluent-local:7.5.0",
		tckafka.WithClusterID("gelap-etl-test"),
	)
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	cconn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer cconn.Close()

	require.NoError(t, cconn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// writeHouses lays out extracted house directories with one site meter and
// the given number of appliances, three rows each.
func writeHouses(t *testing.T, root string, houses, appliances int) {
	t.Helper()
	for h := 1; h <= houses; h++ {
		dir := domain.HouseDir(root, h)
		require.NoError(t, os.MkdirAll(dir, 0o755))

		base := t0 + int64(h)*3_600_000
		site := fmt.Sprintf("timestamp,L1,L2,L3\n%d,1,2,3\n%d,4,5,6\n%d,7,8,9\n", base, base+1000, base+2000)
		require.NoError(t, os.WriteFile(domain.SiteMeterPath(dir), []byte(site), 0o600))

		for e := 1; e <= appliances; e++ {
			body := fmt.Sprintf("timestamp,id,power\n%d,0,%d\n%d,1,%d\n%d,2,%d\n", base, e, base+1000, e, base+2000, e)
			require.NoError(t, os.WriteFile(domain.AppliancePath(dir, e), []byte(body), 0o600))
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "metadata"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "metadata", "dataset.yaml"), []byte("name: GeLaP\n"), 0o600))
}
