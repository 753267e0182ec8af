package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS terminals (
    id          BIGSERIAL PRIMARY KEY,
    tenant_id   TEXT NOT NULL DEFAULT 'default',
    code        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    timezone    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS drivers (
    id             BIGSERIAL PRIMARY KEY,
    tenant_id      TEXT NOT NULL DEFAULT 'default',
    terminal_id    BIGINT NOT NULL REFERENCES terminals(id),
    name           TEXT NOT NULL,
    license_number TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'active',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_drivers_terminal ON drivers(terminal_id);

CREATE TABLE IF NOT EXISTS driver_time_off (
    id          BIGSERIAL PRIMARY KEY,
    driver_id   BIGINT NOT NULL REFERENCES drivers(id) ON DELETE CASCADE,
    start_date  TEXT NOT NULL,
    end_date    TEXT NOT NULL,
    reason      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_time_off_driver ON driver_time_off(driver_id, start_date, end_date);

CREATE TABLE IF NOT EXISTS routes (
    id                BIGSERIAL PRIMARY KEY,
    tenant_id         TEXT NOT NULL DEFAULT 'default',
    terminal_id       BIGINT NOT NULL REFERENCES terminals(id),
    name              TEXT NOT NULL,
    default_driver_id BIGINT REFERENCES drivers(id) ON DELETE SET NULL,
    truck_number      TEXT,
    departure_time    TEXT,
    active_days       TEXT NOT NULL DEFAULT '',
    is_active         BOOLEAN NOT NULL DEFAULT TRUE,
    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_routes_terminal ON routes(terminal_id);

CREATE TABLE IF NOT EXISTS route_stops (
    id          BIGSERIAL PRIMARY KEY,
    route_id    BIGINT NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
    sequence    INTEGER NOT NULL,
    name        TEXT NOT NULL DEFAULT '',
    address     TEXT NOT NULL DEFAULT '',
    planned_eta TEXT,
    planned_etd TEXT,
    UNIQUE(route_id, sequence)
);

CREATE TABLE IF NOT EXISTS route_substitutions (
    id              BIGSERIAL PRIMARY KEY,
    route_id        BIGINT NOT NULL REFERENCES routes(id) ON DELETE CASCADE,
    start_date      TEXT NOT NULL,
    end_date        TEXT NOT NULL,
    driver_id       BIGINT REFERENCES drivers(id) ON DELETE SET NULL,
    truck_number    TEXT,
    sub_unit_number TEXT,
    reason          TEXT NOT NULL DEFAULT '',
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_substitutions_route ON route_substitutions(route_id, start_date, end_date);

CREATE TABLE IF NOT EXISTS dispatch_events (
    id                        BIGSERIAL PRIMARY KEY,
    tenant_id                 TEXT NOT NULL DEFAULT 'default',
    route_id                  BIGINT NOT NULL REFERENCES routes(id),
    terminal_id               BIGINT NOT NULL REFERENCES terminals(id),
    execution_date            TEXT NOT NULL,
    assigned_driver_id        BIGINT REFERENCES drivers(id) ON DELETE SET NULL,
    assigned_truck_id         TEXT,
    assigned_sub_unit_id      TEXT,
    planned_departure_time    TEXT,
    status                    TEXT NOT NULL DEFAULT 'planned',
    priority                  TEXT NOT NULL DEFAULT 'normal',
    actual_departure_time     TIMESTAMPTZ,
    estimated_return_time     TIMESTAMPTZ,
    actual_return_time        TIMESTAMPTZ,
    estimated_completion_time TIMESTAMPTZ,
    actual_completion_time    TIMESTAMPTZ,
    cancellation_reason       TEXT,
    cancellation_notes        TEXT,
    estimated_delay_minutes   INTEGER,
    total_miles               DOUBLE PRECISION,
    total_service_time        INTEGER,
    fuel_used                 DOUBLE PRECISION,
    on_time_performance       INTEGER,
    notes                     TEXT NOT NULL DEFAULT '',
    created_by                TEXT NOT NULL DEFAULT 'system',
    version                   INTEGER NOT NULL DEFAULT 1,
    created_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at                TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(route_id, execution_date)
);
CREATE INDEX IF NOT EXISTS idx_dispatch_terminal_date ON dispatch_events(terminal_id, execution_date);
CREATE INDEX IF NOT EXISTS idx_dispatch_status ON dispatch_events(status);

CREATE TABLE IF NOT EXISTS dispatch_event_stops (
    id                    BIGSERIAL PRIMARY KEY,
    dispatch_event_id     BIGINT NOT NULL REFERENCES dispatch_events(id) ON DELETE CASCADE,
    route_stop_id         BIGINT REFERENCES route_stops(id) ON DELETE SET NULL,
    sequence              INTEGER NOT NULL,
    name                  TEXT NOT NULL DEFAULT '',
    address               TEXT NOT NULL DEFAULT '',
    planned_eta           TEXT,
    planned_etd           TEXT,
    actual_arrival_time   TIMESTAMPTZ,
    actual_departure_time TIMESTAMPTZ,
    status                TEXT NOT NULL DEFAULT 'pending',
    on_time_status        TEXT,
    service_time          INTEGER,
    latitude              DOUBLE PRECISION,
    longitude             DOUBLE PRECISION,
    odometer              DOUBLE PRECISION,
    fuel_used             DOUBLE PRECISION,
    exception_reason      TEXT,
    skip_reason           TEXT,
    requires_attention    BOOLEAN NOT NULL DEFAULT FALSE,
    notes                 TEXT NOT NULL DEFAULT '',
    created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(dispatch_event_id, sequence)
);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    tenant_id   TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   BIGINT NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    summary     TEXT NOT NULL DEFAULT '',
    metadata    JSONB NOT NULL DEFAULT '{}',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);

CREATE TABLE IF NOT EXISTS admin_users (
    id            BIGSERIAL PRIMARY KEY,
    username      TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
