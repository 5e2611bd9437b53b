package schema

import "strings"

// Table names.
const (
	TableAccount       = "account"
	TableInstrument    = "instrument"
	TableModelArtifact = "model_artifact"
	TableConfig        = "config"
	TableSignal        = "signal"
	TableOrder         = "order"
	TableExecution     = "execution"
	TablePosition      = "position"
	TablePnLMinute     = "pnl_minute"
	TableAlert         = "alert"
	TableBacktestRun   = "backtest_run"
	TableAuditEvent    = "audit_event"
)

// ImmutableMessage is the exception text raised by the audit_event guard.
const ImmutableMessage = "audit_event table is immutable"

const (
	tsType    = "TIMESTAMPTZ"
	priceType = "NUMERIC(18,6)"
	now       = "now()"
	zero      = "0"
)

func uuidKey() Column {
	return Column{Name: "id", Type: "UUID", PrimaryKey: true, Default: "gen_random_uuid()"}
}

func serialKey() Column {
	return Column{Name: "id", Type: "BIGSERIAL", PrimaryKey: true}
}

func ref(name, table string) *ForeignKey {
	return &ForeignKey{Name: name, Table: table, Column: "id"}
}

// Baseline returns the complete schema of version 0001: every enumerated
// domain, table, constraint and index, and the audit_event trigger pair.
func Baseline() *Schema {
	return &Schema{
		Extensions: []string{"pgcrypto"},
		Enums:      enums(),
		Tables:     baselineTables(),
		Indexes:    baselineIndexes(),
		Functions: []Function{
			{Name: "audit_raise_on_change", Body: auditRaiseOnChange},
			{Name: "audit_compute_hash", Body: auditComputeHash},
		},
		Triggers: []Trigger{
			{
				Name:     "trg_audit_event_no_change",
				Table:    TableAuditEvent,
				Timing:   "BEFORE",
				Events:   []string{"UPDATE", "DELETE"},
				Function: "audit_raise_on_change",
			},
			{
				Name:     "trg_audit_event_compute_hash",
				Table:    TableAuditEvent,
				Timing:   "BEFORE",
				Events:   []string{"INSERT"},
				Function: "audit_compute_hash",
			},
		},
	}
}

const auditRaiseOnChange = `    RAISE EXCEPTION 'audit_event table is immutable'
        USING DETAIL = format('%s rejected for audit_event id %s', TG_OP, OLD.id);`

// The ts field is rendered in UTC so the hash does not depend on the
// session time zone. jsonb renders keys in a fixed order.
const auditComputeHash = `    IF NEW.hash IS NULL THEN
        NEW.hash := encode(
            digest(
                jsonb_build_object(
                    'ts', to_char(NEW.ts AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS.US"Z"'),
                    'actor_type', NEW.actor_type,
                    'actor_id', NEW.actor_id,
                    'action', NEW.action,
                    'entity_type', NEW.entity_type,
                    'entity_id', NEW.entity_id,
                    'reason', NEW.reason,
                    'before', NEW.before,
                    'after', NEW.after
                )::text,
                'sha256'
            ),
            'hex'
        );
    END IF;
    RETURN NEW;`

func baselineTables() []Table {
	return []Table{
		{
			Name: TableAccount,
			Columns: []Column{
				uuidKey(),
				{Name: "created_at", Type: tsType, Default: now},
				{Name: "broker", Enum: EnumBroker, NotNull: true},
				{Name: "product", Enum: EnumProduct, NotNull: true, Default: "'MIS'"},
				{Name: "timezone", Type: "TEXT", NotNull: true, Default: "'Asia/Kolkata'"},
				{Name: "api_key_ref", Type: "TEXT", NotNull: true},
				{Name: "is_active", Type: "BOOLEAN", NotNull: true, Default: "true"},
			},
		},
		{
			Name: TableInstrument,
			Columns: []Column{
				serialKey(),
				{Name: "token", Type: "BIGINT", NotNull: true},
				{Name: "symbol", Type: "TEXT", NotNull: true},
				{Name: "exchange", Enum: EnumExchange, NotNull: true, Default: "'NSE'"},
				{Name: "tick_size", Type: "NUMERIC(10,6)", NotNull: true},
				{Name: "lot_size", Type: "INTEGER", NotNull: true, Default: "1"},
				{Name: "is_tradable", Type: "BOOLEAN", NotNull: true, Default: "true"},
				{Name: "last_refreshed", Type: tsType},
			},
			Uniques: []Unique{
				{Name: "uq_instrument__token", Columns: []string{"token"}},
				{Name: "uq_instrument__symbol_exchange", Columns: []string{"symbol", "exchange"}},
			},
		},
		{
			Name: TableModelArtifact,
			Columns: []Column{
				uuidKey(),
				{Name: "name", Type: "TEXT", NotNull: true, Default: "'primary'"},
				{Name: "version", Type: "TEXT", NotNull: true},
				{Name: "path", Type: "TEXT", NotNull: true},
				{Name: "schema_hash", Type: "TEXT", NotNull: true},
				{Name: "metrics", Type: "JSONB"},
				{Name: "calib", Type: "JSONB"},
				{Name: "is_active", Type: "BOOLEAN", NotNull: true, Default: "false"},
				{Name: "created_at", Type: tsType, NotNull: true, Default: now},
			},
			Uniques: []Unique{
				{Name: "uq_model_artifact__name_version", Columns: []string{"name", "version"}},
			},
		},
		{
			Name: TableConfig,
			Columns: []Column{
				uuidKey(),
				{Name: "key", Type: "TEXT", NotNull: true, Default: "'trading'"},
				{Name: "version", Type: "INTEGER", NotNull: true},
				{Name: "yaml", Type: "TEXT", NotNull: true},
				{Name: "json", Type: "JSONB"},
				{Name: "schema_hash", Type: "TEXT"},
				{Name: "is_active", Type: "BOOLEAN", NotNull: true, Default: "false"},
				{Name: "created_by", Type: "UUID", References: ref("fk_config__account", TableAccount)},
				{Name: "created_at", Type: tsType, NotNull: true, Default: now},
			},
			Uniques: []Unique{
				{Name: "uq_config__key_version", Columns: []string{"key", "version"}},
			},
		},
		{
			Name: TableSignal,
			Columns: []Column{
				uuidKey(),
				{Name: "ts", Type: tsType, NotNull: true},
				{Name: "instrument_id", Type: "BIGINT", NotNull: true, References: ref("fk_signal__instrument", TableInstrument)},
				{Name: "side", Enum: EnumSignalSide, NotNull: true},
				{Name: "horizon_seconds", Type: "SMALLINT", NotNull: true},
				{Name: "score", Type: "DOUBLE PRECISION", NotNull: true},
				{Name: "confidence", Type: "DOUBLE PRECISION"},
				{Name: "features_ref", Type: "TEXT"},
				{Name: "model_artifact_id", Type: "UUID", References: ref("fk_signal__model_artifact", TableModelArtifact)},
				{Name: "created_at", Type: tsType, Default: now},
			},
		},
		{
			Name: TableOrder,
			Columns: []Column{
				uuidKey(),
				{Name: "account_id", Type: "UUID", NotNull: true, References: ref("fk_order__account", TableAccount)},
				{Name: "instrument_id", Type: "BIGINT", NotNull: true, References: ref("fk_order__instrument", TableInstrument)},
				{Name: "signal_id", Type: "UUID", References: ref("fk_order__signal", TableSignal)},
				{Name: "parent_id", Type: "UUID", References: ref("fk_order__parent", TableOrder)},
				{Name: "client_id", Type: "VARCHAR(64)", NotNull: true},
				{Name: "broker_order_id", Type: "VARCHAR(64)"},
				{Name: "side", Enum: EnumOrderSide, NotNull: true},
				{Name: "type", Enum: EnumOrderType, NotNull: true},
				{Name: "qty", Type: "INTEGER", NotNull: true},
				{Name: "limit_price", Type: priceType},
				{Name: "trigger_price", Type: priceType},
				{Name: "status", Enum: EnumOrderStatus, NotNull: true, Default: "'NEW'"},
				{Name: "rejection_reason", Type: "TEXT"},
				{Name: "placed_at", Type: tsType, NotNull: true, Default: now},
				{Name: "updated_at", Type: tsType, NotNull: true, Default: now},
				{Name: "good_till", Type: tsType},
			},
			Uniques: []Unique{
				{Name: "uq_order__client_id", Columns: []string{"client_id"}},
			},
			Checks: []Check{
				{Name: "ck_order__qty_gt_zero", Expr: "qty > 0"},
			},
		},
		{
			Name: TableExecution,
			Columns: []Column{
				serialKey(),
				{Name: "order_id", Type: "UUID", NotNull: true, References: &ForeignKey{
					Name: "fk_execution__order", Table: TableOrder, Column: "id", OnDelete: "CASCADE",
				}},
				{Name: "ts", Type: tsType, NotNull: true},
				{Name: "qty", Type: "INTEGER", NotNull: true},
				{Name: "price", Type: priceType, NotNull: true},
				{Name: "trade_id", Type: "TEXT"},
				{Name: "liquidity", Enum: EnumLiquidityFlag, NotNull: true, Default: "'UNKNOWN'"},
			},
			Checks: []Check{
				{Name: "ck_execution__qty_gt_zero", Expr: "qty > 0"},
			},
		},
		{
			Name: TablePosition,
			Columns: []Column{
				serialKey(),
				{Name: "trading_day", Type: "DATE", NotNull: true},
				{Name: "instrument_id", Type: "BIGINT", NotNull: true, References: ref("fk_position__instrument", TableInstrument)},
				{Name: "net_qty", Type: "INTEGER", NotNull: true, Default: zero},
				{Name: "avg_price", Type: priceType, NotNull: true, Default: zero},
				{Name: "realized_pnl", Type: priceType, NotNull: true, Default: zero},
				{Name: "unrealized_pnl", Type: priceType, NotNull: true, Default: zero},
				{Name: "last_updated", Type: tsType, NotNull: true, Default: now},
			},
			Uniques: []Unique{
				{Name: "uq_position__trading_day_instrument_id", Columns: []string{"trading_day", "instrument_id"}},
			},
		},
		{
			Name: TablePnLMinute,
			Columns: []Column{
				serialKey(),
				{Name: "ts", Type: tsType, NotNull: true},
				{Name: "instrument_id", Type: "BIGINT", References: ref("fk_pnl_minute__instrument", TableInstrument)},
				{Name: "realized", Type: priceType, NotNull: true, Default: zero},
				{Name: "unrealized", Type: priceType, NotNull: true, Default: zero},
				{Name: "fees", Type: priceType, NotNull: true, Default: zero},
				{Name: "turnover", Type: priceType, NotNull: true, Default: zero},
			},
			Uniques: []Unique{
				{Name: "uq_pnl_minute__ts_instrument_id", Columns: []string{"ts", "instrument_id"}},
			},
		},
		{
			Name: TableAlert,
			Columns: []Column{
				serialKey(),
				{Name: "ts", Type: tsType, NotNull: true, Default: now},
				{Name: "type", Type: "TEXT", NotNull: true},
				{Name: "severity", Enum: EnumAlertSeverity, NotNull: true},
				{Name: "message", Type: "TEXT", NotNull: true},
				{Name: "payload", Type: "JSONB"},
				{Name: "dedup_key", Type: "TEXT"},
				{Name: "acked_at", Type: tsType},
				{Name: "acked_by", Type: "UUID", References: ref("fk_alert__account", TableAccount)},
			},
		},
		{
			Name: TableBacktestRun,
			Columns: []Column{
				uuidKey(),
				{Name: "created_at", Type: tsType, NotNull: true, Default: now},
				{Name: "config_id", Type: "UUID", References: ref("fk_backtest_run__config", TableConfig)},
				{Name: "seed", Type: "INTEGER"},
				{Name: "tag", Type: "TEXT"},
				{Name: "artifact_path", Type: "TEXT"},
				{Name: "metrics", Type: "JSONB", NotNull: true},
				{Name: "trades", Type: "JSONB"},
			},
		},
		{
			Name: TableAuditEvent,
			Columns: []Column{
				serialKey(),
				{Name: "ts", Type: tsType, NotNull: true, Default: now},
				{Name: "actor_type", Type: "TEXT", NotNull: true},
				{Name: "actor_id", Type: "UUID", References: ref("fk_audit_event__account", TableAccount)},
				{Name: "action", Type: "TEXT", NotNull: true},
				{Name: "entity_type", Type: "TEXT", NotNull: true},
				{Name: "entity_id", Type: "TEXT", NotNull: true},
				{Name: "reason", Type: "TEXT"},
				{Name: "ip", Type: "TEXT"},
				{Name: "user_agent", Type: "TEXT"},
				{Name: "before", Type: "JSONB"},
				{Name: "after", Type: "JSONB"},
				{Name: "hash", Type: "TEXT", NotNull: true},
			},
			Uniques: []Unique{
				{Name: "uq_audit_event__hash", Columns: []string{"hash"}},
			},
		},
	}
}

func baselineIndexes() []Index {
	return []Index{
		{Name: "ix_account__broker", Table: TableAccount, Columns: []string{"broker"}},

		{Name: "ix_instrument__is_tradable", Table: TableInstrument, Columns: []string{"is_tradable"}},
		{Name: "ix_instrument__symbol", Table: TableInstrument, Columns: []string{"symbol"}},

		{Name: "ix_model_artifact__is_active", Table: TableModelArtifact, Columns: []string{"is_active"}},

		{Name: "ix_config__created_at_desc", Table: TableConfig, Columns: []string{"created_at DESC"}},
		{Name: "uq_config__key_active", Table: TableConfig, Columns: []string{"key"}, Unique: true, Where: "is_active"},

		{Name: "ix_signal__instrument_id_ts_desc", Table: TableSignal, Columns: []string{"instrument_id", "ts DESC"}},
		{Name: "ix_signal__ts_desc", Table: TableSignal, Columns: []string{"ts DESC"}},

		{Name: "ix_order__account_id_placed_at_desc", Table: TableOrder, Columns: []string{"account_id", "placed_at DESC"}},
		{Name: "ix_order__instrument_id_status", Table: TableOrder, Columns: []string{"instrument_id", "status"}},
		{Name: "ix_order__open", Table: TableOrder, Columns: []string{"instrument_id"}, Where: OpenOrderPredicate()},
		{Name: "uq_order__broker_order_id", Table: TableOrder, Columns: []string{"broker_order_id"}, Unique: true, Where: "broker_order_id IS NOT NULL"},

		{Name: "ix_execution__order_id_ts", Table: TableExecution, Columns: []string{"order_id", "ts"}},
		{Name: "ix_execution__ts", Table: TableExecution, Columns: []string{"ts"}},
		{Name: "uq_execution__trade_id", Table: TableExecution, Columns: []string{"trade_id"}, Unique: true, Where: "trade_id IS NOT NULL"},

		{Name: "ix_position__instrument_id", Table: TablePosition, Columns: []string{"instrument_id"}},
		{Name: "ix_position__trading_day", Table: TablePosition, Columns: []string{"trading_day"}},

		{Name: "ix_pnl_minute__ts", Table: TablePnLMinute, Columns: []string{"ts"}},
		{Name: "ix_pnl_minute__instrument_id_ts", Table: TablePnLMinute, Columns: []string{"instrument_id", "ts"}},

		{Name: "ix_alert__ts_desc", Table: TableAlert, Columns: []string{"ts DESC"}},
		{Name: "ix_alert__severity_ts_desc", Table: TableAlert, Columns: []string{"severity", "ts DESC"}},
		{Name: "ix_alert__type_ts_desc", Table: TableAlert, Columns: []string{"type", "ts DESC"}},
		{Name: "uq_alert__dedup_key", Table: TableAlert, Columns: []string{"dedup_key"}, Unique: true, Where: "dedup_key IS NOT NULL"},

		{Name: "ix_backtest_run__created_at_desc", Table: TableBacktestRun, Columns: []string{"created_at DESC"}},
		{Name: "uq_backtest_run__tag", Table: TableBacktestRun, Columns: []string{"tag"}, Unique: true, Where: "tag IS NOT NULL"},

		{Name: "ix_audit_event__ts_desc", Table: TableAuditEvent, Columns: []string{"ts DESC"}},
		{Name: "ix_audit_event__entity_type_entity_id_ts_desc", Table: TableAuditEvent, Columns: []string{"entity_type", "entity_id", "ts DESC"}},
	}
}

// OpenOrderPredicate is the WHERE clause of ix_order__open. Queries that
// want the planner to use the index must repeat it verbatim.
func OpenOrderPredicate() string {
	quoted := make([]string, len(OpenOrderStatuses))
	for i, s := range OpenOrderStatuses {
		quoted[i] = literal(s)
	}
	return "status IN (" + strings.Join(quoted, ",") + ")"
}
