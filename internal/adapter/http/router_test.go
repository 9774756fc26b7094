package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	adapterhttp "github.com/iho/playerbank/internal/adapter/http"
	"github.com/iho/playerbank/internal/adapter/http/dto"
	"github.com/iho/playerbank/internal/adapter/http/handler"
	"github.com/iho/playerbank/internal/bank"
	"github.com/iho/playerbank/internal/domain"
	"github.com/iho/playerbank/internal/remote"
	"github.com/iho/playerbank/internal/remote/mocks"
)

const testRemoteID = "sql-main"

func newTestRouter(t *testing.T, rem remote.Remote) http.Handler {
	t.Helper()

	currencies := bank.NewCurrencyRegistry()
	require.NoError(t, currencies.Register(domain.Currency{
		ID:           "crowns",
		NameSingular: "crown",
		NamePlural:   "crowns",
		RemoteID:     testRemoteID,
	}))

	remotes := bank.NewRemoteRegistry()
	require.NoError(t, remotes.Register(rem))

	dir := bank.NewDirectory(bank.DirectoryParams{
		Currencies: currencies,
		Remotes:    remotes,
		Logger:     zerolog.Nop(),
	})

	return adapterhttp.NewRouter(adapterhttp.RouterConfig{
		BankHandler:   handler.NewBankHandler(dir, nil, zerolog.Nop()),
		HealthHandler: handler.NewHealthHandler(nil, nil),
	})
}

func newRouterRemote(t *testing.T) *mocks.MockRemote {
	t.Helper()
	ctrl := gomock.NewController(t)

	rem := mocks.NewMockRemote(ctrl)
	rem.EXPECT().ID().Return(testRemoteID).AnyTimes()
	rem.EXPECT().
		FetchAccount(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.Identity) (*domain.Data, error) {
			data := domain.NewData()
			data.Cell(domain.Currency{ID: "crowns"}).Set(decimal.NewFromInt(100))
			return data, nil
		}).
		AnyTimes()
	rem.EXPECT().
		FetchWealthyAccounts(gomock.Any(), gomock.Any()).
		Return([]remote.Snapshot{{
			Identity: domain.Identity{UUID: uuid.New(), Name: "rich"},
			Balances: map[string]decimal.Decimal{"crowns": decimal.NewFromInt(900)},
		}}, nil).
		AnyTimes()
	return rem
}

func TestRouter(t *testing.T) {
	router := newTestRouter(t, newRouterRemote(t))

	get := func(t *testing.T, path string) *httptest.ResponseRecorder {
		t.Helper()
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		return rr
	}

	t.Run("health", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, "/health").Code)
		assert.Equal(t, http.StatusOK, get(t, "/ready").Code)
	})

	t.Run("metrics scrape target", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, get(t, "/metrics").Code)
	})

	t.Run("account by name", func(t *testing.T) {
		rr := get(t, "/api/v1/accounts/steve")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AccountResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, "steve", resp.Name)
		assert.Equal(t, "100", resp.Balances["crowns"])
	})

	t.Run("account by uuid", func(t *testing.T) {
		id := uuid.New()
		rr := get(t, "/api/v1/accounts/"+id.String())
		require.Equal(t, http.StatusOK, rr.Code)

		var resp dto.AccountResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.Equal(t, id.String(), resp.UUID)
	})

	t.Run("currencies", func(t *testing.T) {
		rr := get(t, "/api/v1/currencies")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp []dto.CurrencyResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, "crowns", resp[0].ID)
	})

	t.Run("wealth ranking", func(t *testing.T) {
		rr := get(t, "/api/v1/wealthy/crowns")
		require.Equal(t, http.StatusOK, rr.Code)

		var resp []dto.WealthyEntry
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp, 1)
		assert.Equal(t, 1, resp[0].Rank)
		assert.Equal(t, "rich", resp[0].Name)
		assert.Equal(t, "900 crowns", resp[0].Formatted)
	})

	t.Run("unknown currency is 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, "/api/v1/wealthy/shells").Code)
	})

	t.Run("audit log without repository is 404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, get(t, "/api/v1/audit").Code)
	})

	t.Run("cache invalidation", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
		assert.Equal(t, http.StatusNoContent, rr.Code)
	})
}
