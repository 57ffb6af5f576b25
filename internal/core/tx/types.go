package tx

import "fmt"

// Type is the numeric transaction type code carried on the wire.
type Type uint16

// All transaction type codes accepted by the chain.
const (
	TypeInvalid Type = 0 // unused; envelopes are 1-based

	TypeNFTCreateCollection       Type = 1  // NFT_CREATE_COLLECTION
	TypeNFTMint                   Type = 2  // NFT_MINT
	TypeNFTTransfer               Type = 3  // NFT_TRANSFER
	TypeNFTListItem               Type = 4  // NFT_LIST_ITEM
	TypeNFTDelistItem             Type = 5  // NFT_DELIST_ITEM
	TypeNFTBuyItem                Type = 6  // NFT_BUY_ITEM
	TypeNFTUpdate                 Type = 7  // NFT_UPDATE
	TypeNFTUpdateCollection       Type = 8  // NFT_UPDATE_COLLECTION
	TypeMarketPlaceOrder          Type = 9  // MARKET_PLACE_ORDER
	TypeMarketCancelOrder         Type = 10 // MARKET_CANCEL_ORDER
	TypeMarketTrade               Type = 11 // MARKET_TRADE
	TypeFarmCreate                Type = 12 // FARM_CREATE
	TypeFarmStake                 Type = 13 // FARM_STAKE
	TypeFarmUnstake               Type = 14 // FARM_UNSTAKE
	TypeFarmClaimRewards          Type = 15 // FARM_CLAIM_REWARDS
	TypeFarmUpdateWeight          Type = 16 // FARM_UPDATE_WEIGHT
	TypePoolCreate                Type = 17 // POOL_CREATE
	TypePoolAddLiquidity          Type = 18 // POOL_ADD_LIQUIDITY
	TypePoolRemoveLiquidity       Type = 19 // POOL_REMOVE_LIQUIDITY
	TypePoolSwap                  Type = 20 // POOL_SWAP
	TypeTokenCreate               Type = 21 // TOKEN_CREATE
	TypeTokenMint                 Type = 22 // TOKEN_MINT
	TypeTokenTransfer             Type = 23 // TOKEN_TRANSFER
	TypeTokenUpdate               Type = 24 // TOKEN_UPDATE
	TypeTokenWithdraw             Type = 25 // TOKEN_WITHDRAW
	TypeWitnessRegister           Type = 26 // WITNESS_REGISTER
	TypeWitnessVote               Type = 27 // WITNESS_VOTE
	TypeWitnessUnvote             Type = 28 // WITNESS_UNVOTE
	TypeLaunchpadLaunchToken      Type = 29 // LAUNCHPAD_LAUNCH_TOKEN
	TypeLaunchpadParticipate      Type = 30 // LAUNCHPAD_PARTICIPATE_PRESALE
	TypeLaunchpadClaimTokens      Type = 31 // LAUNCHPAD_CLAIM_TOKENS
	TypeNFTBatchOperations        Type = 32 // NFT_BATCH_OPERATIONS
	TypeLaunchpadUpdateStatus     Type = 33 // LAUNCHPAD_UPDATE_STATUS
	TypeLaunchpadFinalizePresale  Type = 34 // LAUNCHPAD_FINALIZE_PRESALE
	TypeLaunchpadSetMainToken     Type = 35 // LAUNCHPAD_SET_MAIN_TOKEN
	TypeLaunchpadRefundPresale    Type = 36 // LAUNCHPAD_REFUND_PRESALE
	TypeLaunchpadUpdateWhitelist  Type = 37 // LAUNCHPAD_UPDATE_WHITELIST
	TypeLaunchpadConfigurePresale Type = 38 // LAUNCHPAD_CONFIGURE_PRESALE
	TypeNFTAcceptBid              Type = 39 // NFT_ACCEPT_BID
	TypeNFTCancelBid              Type = 40 // NFT_CANCEL_BID
	TypeNFTMakeOffer              Type = 41 // NFT_MAKE_OFFER
	TypeNFTAcceptOffer            Type = 42 // NFT_ACCEPT_OFFER
	TypeNFTCancelOffer            Type = 43 // NFT_CANCEL_OFFER
)

var typeNames = map[Type]string{
	TypeNFTCreateCollection:       "NFT_CREATE_COLLECTION",
	TypeNFTMint:                   "NFT_MINT",
	TypeNFTTransfer:               "NFT_TRANSFER",
	TypeNFTListItem:               "NFT_LIST_ITEM",
	TypeNFTDelistItem:             "NFT_DELIST_ITEM",
	TypeNFTBuyItem:                "NFT_BUY_ITEM",
	TypeNFTUpdate:                 "NFT_UPDATE",
	TypeNFTUpdateCollection:       "NFT_UPDATE_COLLECTION",
	TypeMarketPlaceOrder:          "MARKET_PLACE_ORDER",
	TypeMarketCancelOrder:         "MARKET_CANCEL_ORDER",
	TypeMarketTrade:               "MARKET_TRADE",
	TypeFarmCreate:                "FARM_CREATE",
	TypeFarmStake:                 "FARM_STAKE",
	TypeFarmUnstake:               "FARM_UNSTAKE",
	TypeFarmClaimRewards:          "FARM_CLAIM_REWARDS",
	TypeFarmUpdateWeight:          "FARM_UPDATE_WEIGHT",
	TypePoolCreate:                "POOL_CREATE",
	TypePoolAddLiquidity:          "POOL_ADD_LIQUIDITY",
	TypePoolRemoveLiquidity:       "POOL_REMOVE_LIQUIDITY",
	TypePoolSwap:                  "POOL_SWAP",
	TypeTokenCreate:               "TOKEN_CREATE",
	TypeTokenMint:                 "TOKEN_MINT",
	TypeTokenTransfer:             "TOKEN_TRANSFER",
	TypeTokenUpdate:               "TOKEN_UPDATE",
	TypeTokenWithdraw:             "TOKEN_WITHDRAW",
	TypeWitnessRegister:           "WITNESS_REGISTER",
	TypeWitnessVote:               "WITNESS_VOTE",
	TypeWitnessUnvote:             "WITNESS_UNVOTE",
	TypeLaunchpadLaunchToken:      "LAUNCHPAD_LAUNCH_TOKEN",
	TypeLaunchpadParticipate:      "LAUNCHPAD_PARTICIPATE_PRESALE",
	TypeLaunchpadClaimTokens:      "LAUNCHPAD_CLAIM_TOKENS",
	TypeNFTBatchOperations:        "NFT_BATCH_OPERATIONS",
	TypeLaunchpadUpdateStatus:     "LAUNCHPAD_UPDATE_STATUS",
	TypeLaunchpadFinalizePresale:  "LAUNCHPAD_FINALIZE_PRESALE",
	TypeLaunchpadSetMainToken:     "LAUNCHPAD_SET_MAIN_TOKEN",
	TypeLaunchpadRefundPresale:    "LAUNCHPAD_REFUND_PRESALE",
	TypeLaunchpadUpdateWhitelist:  "LAUNCHPAD_UPDATE_WHITELIST",
	TypeLaunchpadConfigurePresale: "LAUNCHPAD_CONFIGURE_PRESALE",
	TypeNFTAcceptBid:              "NFT_ACCEPT_BID",
	TypeNFTCancelBid:              "NFT_CANCEL_BID",
	TypeNFTMakeOffer:              "NFT_MAKE_OFFER",
	TypeNFTAcceptOffer:            "NFT_ACCEPT_OFFER",
	TypeNFTCancelOffer:            "NFT_CANCEL_OFFER",
}

var typeCodes = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

// String returns the wire name of the transaction type.
func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint16(t))
}

// Valid reports whether t is a known transaction type code.
func (t Type) Valid() bool {
	_, ok := typeNames[t]
	return ok
}

// TypeFromName returns the type code for a wire name.
func TypeFromName(name string) (Type, bool) {
	t, ok := typeCodes[name]
	return t, ok
}
