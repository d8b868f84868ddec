//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"valuation-workers/internal/common/config"
	"valuation-workers/internal/common/database"
	"valuation-workers/internal/common/logger"
	"valuation-workers/internal/common/observability"
	"valuation-workers/internal/models"
	"valuation-workers/internal/repository"
	"valuation-workers/internal/valuation"

	bvr "valuation-workers/internal/workers/valuation/build-valuation-report"
	cv "valuation-workers/internal/workers/valuation/calculate-valuation"
	sc "valuation-workers/internal/workers/valuation/select-comparables"
)

var (
	zeebeClient zbc.Client
	zapLog      *zap.Logger
)

func TestMain(m *testing.M) {
	var err error

	zeebeClient, err = zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         "localhost:26500",
		UsePlaintextConnection: true,
	})
	if err != nil {
		panic(fmt.Sprintf("❌ Failed to connect to Zeebe: %v", err))
	}

	zapLog, _ = zap.NewProduction()

	code := m.Run()

	zeebeClient.Close()
	os.Exit(code)
}

func TestFullE2E(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// force localhost for e2e runs
	cfg.Database.Postgres.Host = "localhost"
	cfg.Database.Redis.Address = "localhost:6379"
	cfg.Database.Elasticsearch.URL = "http://localhost:9200"
	cfg.Database.Elasticsearch.ComparablesIndex = "e2e_comparable_sales"

	t.Log("🚀 Starting valuation E2E test with real services...")

	clients := connectAll(t, cfg)
	defer clients.close()

	seedPostgres(t, clients.pg)
	seedElasticsearch(t, clients.es, cfg.Database.Elasticsearch.ComparablesIndex)
	deployBPMN(t)
	testWorkers(t, cfg, clients)

	t.Log("✅ Valuation E2E workflow successful")
}

// ==========================
// 1. Service Connectivity
// ==========================

type serviceClients struct {
	pg    *database.PostgresClient
	es    *database.ElasticsearchClient
	redis *database.RedisClient
}

func (c *serviceClients) close() {
	c.pg.Close()
	c.redis.Close()
}

func connectAll(t *testing.T, cfg *config.Config) *serviceClients {
	t.Log("🔍 Checking service connectivity...")
	ctx := context.Background()

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	require.NoError(t, err, "❌ PostgreSQL connection failed")
	require.NoError(t, pg.Ping(ctx), "❌ PostgreSQL ping failed")
	t.Log("✅ PostgreSQL connected")

	rdb, err := database.NewRedis(cfg.Database.Redis)
	require.NoError(t, err, "❌ Redis client creation failed")
	require.NoError(t, rdb.Ping(ctx), "❌ Redis ping failed")
	t.Log("✅ Redis connected")

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	require.NoError(t, err, "❌ Elasticsearch client creation failed")
	require.NoError(t, es.Ping(), "❌ Elasticsearch ping failed")
	t.Log("✅ Elasticsearch connected")

	_, err = zeebeClient.NewTopologyCommand().Send(ctx)
	require.NoError(t, err, "❌ Zeebe topology request failed")
	t.Log("✅ Zeebe connected")

	return &serviceClients{pg: pg, es: es, redis: rdb}
}

// ==========================
// 2. Test Data
// ==========================

var e2eComparables = []models.ComparableSale{
	{ID: "E2E-C001", PropertyType: "single_family", Bedrooms: 3, Bathrooms: 2, Sqft: 1750, LotSize: 0.2, SalePrice: 725000, SaleDate: "2024-05-01"},
	{ID: "E2E-C002", PropertyType: "single_family", Bedrooms: 3, Bathrooms: 3, Sqft: 1900, LotSize: 0.22, SalePrice: 760000, SaleDate: "2024-02-02"},
	{ID: "E2E-C003", PropertyType: "condo", Bedrooms: 2, Bathrooms: 1, Sqft: 1000, SalePrice: 395000, SaleDate: "2024-04-11"},
}

func seedPostgres(t *testing.T, pg *database.PostgresClient) {
	t.Log("🔧 Creating tables and inserting test data...")

	queries := []string{
		`CREATE TABLE IF NOT EXISTS properties (
			id VARCHAR(64) PRIMARY KEY,
			address TEXT,
			city VARCHAR(100),
			state VARCHAR(32),
			zip_code VARCHAR(16),
			property_type VARCHAR(50) NOT NULL,
			bedrooms NUMERIC NOT NULL DEFAULT 0,
			bathrooms NUMERIC NOT NULL DEFAULT 0,
			sqft NUMERIC NOT NULL DEFAULT 0,
			lot_size NUMERIC NOT NULL DEFAULT 0,
			year_built INTEGER,
			annual_rent NUMERIC
		)`,
		`CREATE TABLE IF NOT EXISTS comparable_sales (
			id VARCHAR(64) PRIMARY KEY,
			property_type VARCHAR(50) NOT NULL,
			bedrooms NUMERIC NOT NULL DEFAULT 0,
			bathrooms NUMERIC NOT NULL DEFAULT 0,
			sqft NUMERIC NOT NULL DEFAULT 0,
			lot_size NUMERIC NOT NULL DEFAULT 0,
			sale_price NUMERIC NOT NULL,
			sale_date DATE
		)`,
		`INSERT INTO properties (id, address, city, state, zip_code, property_type, bedrooms, bathrooms, sqft, lot_size, year_built, annual_rent)
		 VALUES ('E2E-P001', '12 Elm St', 'Austin', 'TX', '78701', 'single_family', 3, 2.5, 1800, 0.25, 1995, 48000)
		 ON CONFLICT (id) DO NOTHING`,
	}
	for _, c := range e2eComparables {
		queries = append(queries, fmt.Sprintf(
			`INSERT INTO comparable_sales (id, property_type, bedrooms, bathrooms, sqft, lot_size, sale_price, sale_date)
			 VALUES ('%s', '%s', %v, %v, %v, %v, %v, '%s') ON CONFLICT (id) DO NOTHING`,
			c.ID, c.PropertyType, c.Bedrooms, c.Bathrooms, c.Sqft, c.LotSize, c.SalePrice, c.SaleDate))
	}

	for _, q := range queries {
		_, err := pg.DB.Exec(q)
		require.NoError(t, err, "❌ seed query failed: %s", q)
	}
	t.Log("✅ Tables created with test data")
}

func seedElasticsearch(t *testing.T, es *database.ElasticsearchClient, index string) {
	t.Logf("🔧 Indexing comparables into %s...", index)

	if res, err := es.Client.Indices.Delete([]string{index}); err == nil {
		res.Body.Close()
	}

	mapping := `{"mappings":{"properties":{
		"id":{"type":"keyword"},
		"property_type":{"type":"keyword"},
		"sale_date":{"type":"date","format":"yyyy-MM-dd"}
	}}}`
	res, err := es.Client.Indices.Create(index, es.Client.Indices.Create.WithBody(strings.NewReader(mapping)))
	require.NoError(t, err)
	require.False(t, res.IsError(), res.String())
	res.Body.Close()

	for _, c := range e2eComparables {
		body, err := json.Marshal(c)
		require.NoError(t, err)
		res, err := es.Client.Index(index, bytes.NewReader(body),
			es.Client.Index.WithDocumentID(c.ID),
			es.Client.Index.WithRefresh("true"))
		require.NoError(t, err)
		require.False(t, res.IsError(), res.String())
		res.Body.Close()
	}
	t.Logf("✅ Indexed %d comparables", len(e2eComparables))
}

// ==========================
// 3. Deploy BPMN
// ==========================

func deployBPMN(t *testing.T) {
	var path string
	for _, dir := range []string{"bpmn", "../bpmn", "../../bpmn"} {
		candidate := filepath.Join(dir, "property-valuation.bpmn")
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
			break
		}
	}
	if path == "" {
		t.Log("⚠️ property-valuation.bpmn not found, skipping deployment")
		return
	}

	_, err := zeebeClient.NewDeployResourceCommand().AddResourceFile(path).Send(context.Background())
	require.NoError(t, err, "❌ BPMN deployment failed")
	t.Logf("✅ Deployed: %s", path)
}

// ==========================
// 4. Workers
// ==========================

func testWorkers(t *testing.T, cfg *config.Config, clients *serviceClients) {
	log := logger.NewZapAdapter(zapLog)

	var repo valuation.PropertyRepository = repository.NewPostgresRepository(clients.pg, log)
	repo = repository.NewSearchRepository(repo, clients.es, cfg.Database.Elasticsearch.ComparablesIndex, log)
	cached := repository.NewCachedRepository(repo, clients.redis, time.Minute, log)
	require.NoError(t, cached.Invalidate(context.Background(), "E2E-P001"))

	engine := valuation.NewEngine(valuation.DefaultPolicy(), log)

	var results []valuation.Result

	t.Run(sc.TaskType, func(t *testing.T) {
		h := sc.NewHandler(&sc.Config{Timeout: 10 * time.Second}, engine, cached, log)
		out, err := h.Execute(context.Background(), &sc.Input{PropertyID: "E2E-P001"})
		require.NoError(t, err)
		assert.Equal(t, 2, out.Count)
		assert.Equal(t, "E2E-C001", out.Comparables[0].ID)
	})

	t.Run(cv.TaskType, func(t *testing.T) {
		h := cv.NewHandler(&cv.Config{Timeout: 10 * time.Second}, engine, cached, observability.NewNoop(), log)
		out, err := h.Execute(context.Background(), &cv.Input{PropertyID: "E2E-P001", AllMethods: true})
		require.NoError(t, err)
		require.Len(t, out.Results, len(valuation.Methods))
		assert.True(t, out.Primary.OK())
		results = out.Results

		// second run is served from Redis
		again, err := h.Execute(context.Background(), &cv.Input{PropertyID: "E2E-P001", AllMethods: true})
		require.NoError(t, err)
		assert.Equal(t, out.Primary.Value, again.Primary.Value)
	})

	t.Run(bvr.TaskType, func(t *testing.T) {
		require.NotEmpty(t, results)
		h := bvr.NewHandler(bvr.LoadConfig(cfg), log)
		out, err := h.Execute(context.Background(), &bvr.Input{RequestID: "e2e", Results: results})
		require.NoError(t, err)
		assert.Equal(t, "success", out.Status)
		assert.NotEmpty(t, out.Report.Valuation.FinalValue)
	})
}
