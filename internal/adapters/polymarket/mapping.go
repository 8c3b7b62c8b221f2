package polymarket

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/alejandrodnm/polycopy/internal/domain"
)

// mapPositions convierte la respuesta de /positions a domain.Position.
// Entradas sin conditionId o sin tamaño se descartan; el polvo lo filtra
// domain.NewSnapshot.
func mapPositions(raw []dataPosition) []domain.Position {
	out := make([]domain.Position, 0, len(raw))
	for _, r := range raw {
		if r.ConditionID == "" {
			continue
		}
		size := parseNumber(r.Size)
		if size == 0 {
			continue
		}
		out = append(out, domain.Position{
			Key: domain.PositionKey{
				MarketID: strings.ToLower(r.ConditionID),
				Outcome:  outcomeLabel(r),
			},
			TokenID:    r.Asset,
			Size:       size,
			AvgPrice:   parseNumber(r.AvgPrice),
			CurPrice:   parseNumber(r.CurPrice),
			Title:      r.Title,
			NegRisk:    r.NegativeRisk,
			Redeemable: r.Redeemable,
		})
	}
	return out
}

// outcomeLabel usa el texto del outcome y cae al índice si viene vacío.
func outcomeLabel(r dataPosition) string {
	if r.Outcome != "" {
		return r.Outcome
	}
	return "outcome-" + strconv.Itoa(r.OutcomeIndex)
}

// mapLeaderboard normaliza direcciones y descarta entradas sin dirección.
func mapLeaderboard(raw []leaderboardEntry) []domain.Trader {
	out := make([]domain.Trader, 0, len(raw))
	for _, e := range raw {
		addr := domain.NormalizeAddress(e.Address)
		if addr == "" {
			continue
		}
		label := e.Name
		if label == "" {
			label = e.Username
		}
		out = append(out, domain.Trader{
			Address: addr,
			Label:   label,
			Source:  domain.SourceAPI,
			Active:  true,
		})
	}
	return out
}

func parseNumber(n json.Number) float64 {
	if n == "" {
		return 0
	}
	f, err := n.Float64()
	if err != nil {
		return 0
	}
	return f
}

// parseMicro convierte un string en micro-unidades ("1000000") a unidades.
func parseMicro(s string) float64 {
	if s == "" {
		return 0
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		// El CLOB a veces devuelve decimales ya escalados.
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	}
	f, _ := new(big.Float).SetInt(n).Float64()
	return f / 1_000_000
}
