package schema

// Enumerated domains. Adding a member means adding a migration version.
const (
	EnumBroker        = "broker_enum"
	EnumExchange      = "exchange_enum"
	EnumProduct       = "product_enum"
	EnumOrderSide     = "order_side_enum"
	EnumOrderType     = "order_type_enum"
	EnumOrderStatus   = "order_status_enum"
	EnumSignalSide    = "signal_side_enum"
	EnumLiquidityFlag = "liquidity_flag_enum"
	EnumAlertSeverity = "alert_severity_enum"
)

const (
	BrokerZerodha = "ZERODHA"

	ExchangeNSE = "NSE"

	ProductMIS = "MIS"

	SideBuy  = "BUY"
	SideSell = "SELL"

	OrderTypeLimit   = "LIMIT"
	OrderTypeSLLimit = "SL_LIMIT"
	OrderTypeMarket  = "MARKET"

	OrderStatusNew             = "NEW"
	OrderStatusPending         = "PENDING"
	OrderStatusOpen            = "OPEN"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCancelled       = "CANCELLED"
	OrderStatusRejected        = "REJECTED"
	OrderStatusExpired         = "EXPIRED"
	OrderStatusTriggerPending  = "TRIGGER_PENDING"

	SignalLong  = "LONG"
	SignalShort = "SHORT"

	LiquidityPassive    = "PASSIVE"
	LiquidityAggressive = "AGGRESSIVE"
	LiquidityUnknown    = "UNKNOWN"

	SeverityInfo     = "INFO"
	SeverityWarn     = "WARN"
	SeverityCritical = "CRITICAL"
)

// OpenOrderStatuses are the statuses covered by the ix_order__open partial
// index, in predicate order.
var OpenOrderStatuses = []string{
	OrderStatusOpen,
	OrderStatusPending,
	OrderStatusTriggerPending,
	OrderStatusPartiallyFilled,
}

func enums() []Enum {
	return []Enum{
		{Name: EnumBroker, Values: []string{BrokerZerodha}},
		{Name: EnumExchange, Values: []string{ExchangeNSE}},
		{Name: EnumProduct, Values: []string{ProductMIS}},
		{Name: EnumOrderSide, Values: []string{SideBuy, SideSell}},
		{Name: EnumOrderType, Values: []string{OrderTypeLimit, OrderTypeSLLimit, OrderTypeMarket}},
		{Name: EnumOrderStatus, Values: []string{
			OrderStatusNew,
			OrderStatusPending,
			OrderStatusOpen,
			OrderStatusPartiallyFilled,
			OrderStatusFilled,
			OrderStatusCancelled,
			OrderStatusRejected,
			OrderStatusExpired,
			OrderStatusTriggerPending,
		}},
		{Name: EnumSignalSide, Values: []string{SignalLong, SignalShort}},
		{Name: EnumLiquidityFlag, Values: []string{LiquidityPassive, LiquidityAggressive, LiquidityUnknown}},
		{Name: EnumAlertSeverity, Values: []string{SeverityInfo, SeverityWarn, SeverityCritical}},
	}
}
