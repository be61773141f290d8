package pledges

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/shopspring/decimal"
)

// ConsentHash binds a digital consent to the exact terms the user signed:
// the stock, quantity, price, fee and the moment of signing. Any later change
// to those values produces a different hash, so the stored hash is durable
// proof of what was consented to.
func ConsentHash(userID, sessionID, stockSymbol string, qty, price, fee decimal.Decimal, signature string, signedAtUnix int64) string {
	buf := userID + "|" + sessionID + "|" + stockSymbol + "|" +
		qty.String() + "|" + price.String() + "|" + fee.String() + "|" +
		signature + "|" + strconv.FormatInt(signedAtUnix, 10)
	sum := sha256.Sum256([]byte(buf))
	return hex.EncodeToString(sum[:])
}
