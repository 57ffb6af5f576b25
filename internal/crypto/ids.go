package crypto

import "encoding/hex"

// ShortID returns the first n hex characters of the digest of parts.
// n must be even and at most 64.
func ShortID(n int, parts ...string) string {
	sum := Digest(parts...)
	return hex.EncodeToString(sum[:])[:n]
}

// OrderID derives the identifier for an order placed by sender on pairID
// with the account's order nonce.
func OrderID(sender, pairID, nonce string) string {
	return ShortID(16, sender, pairID, nonce)
}

// TradeID derives the identifier for a fill between two orders.
func TradeID(pairID, makerID, takerID, quantity, price string) string {
	return ShortID(16, pairID, makerID, takerID, quantity, price)
}

// LaunchpadID derives the identifier for a token launch.
func LaunchpadID(sender, symbol, txID string) string {
	return "pad-" + ShortID(12, sender, symbol, txID)
}

// NFTListingID derives the identifier for a marketplace listing.
func NFTListingID(tokenID, seller, txID string) string {
	return ShortID(16, tokenID, seller, txID)
}

// NFTBidID derives the identifier for a bid on a listing.
func NFTBidID(listingID, bidder, txID string) string {
	return ShortID(16, listingID, bidder, txID)
}

// NFTOfferID derives the identifier for a standing offer. It omits the tx
// id on purpose: one (target, bidder) pair maps to one document, which is
// what enforces the single-active-offer rule.
func NFTOfferID(targetType, targetID, offerBy string) string {
	return ShortID(16, targetType, targetID, offerBy)
}
