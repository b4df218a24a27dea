package crdb

// Schema is the DDL for the reservation store. Tests apply it against
// throwaway containers; deployments manage the same tables externally.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	user_id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT UNIQUE NOT NULL,
	phone TEXT NOT NULL DEFAULT '',
	role TEXT NOT NULL DEFAULT 'user'
);

CREATE TABLE IF NOT EXISTS teams (
	team_id UUID PRIMARY KEY,
	team_name TEXT UNIQUE NOT NULL,
	league TEXT NOT NULL DEFAULT '',
	city TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS matches (
	match_id UUID PRIMARY KEY,
	home_team_id UUID NOT NULL REFERENCES teams(team_id),
	away_team_id UUID NOT NULL REFERENCES teams(team_id),
	match_date TIMESTAMPTZ NOT NULL,
	stadium TEXT NOT NULL,
	total_seats INT NOT NULL
);

CREATE TABLE IF NOT EXISTS seats (
	seat_id UUID PRIMARY KEY,
	match_id UUID NOT NULL REFERENCES matches(match_id),
	block TEXT NOT NULL,
	row_no TEXT NOT NULL,
	seat_number TEXT NOT NULL,
	grade TEXT NOT NULL,
	price INT8 NOT NULL,
	is_reserved BOOL NOT NULL DEFAULT false,
	UNIQUE (match_id, block, row_no, seat_number)
);

CREATE TABLE IF NOT EXISTS reservations (
	res_id UUID PRIMARY KEY,
	user_id UUID NOT NULL REFERENCES users(user_id),
	match_id UUID NOT NULL REFERENCES matches(match_id),
	seat_id UUID NOT NULL REFERENCES seats(seat_id),
	res_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	status TEXT NOT NULL CHECK (status IN ('active', 'cancelled'))
);

CREATE TABLE IF NOT EXISTS payments (
	pay_id UUID PRIMARY KEY,
	res_id UUID UNIQUE NOT NULL REFERENCES reservations(res_id),
	amount INT8 NOT NULL,
	method TEXT NOT NULL,
	pay_date TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS cancel_log (
	cancel_id UUID PRIMARY KEY,
	res_id UUID NOT NULL REFERENCES reservations(res_id),
	user_id UUID NOT NULL REFERENCES users(user_id),
	cancel_date TIMESTAMPTZ NOT NULL DEFAULT now(),
	reason TEXT
);

CREATE TABLE IF NOT EXISTS abuse_log (
	abuse_id UUID PRIMARY KEY,
	user_id UUID NOT NULL,
	match_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	detected_time TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS request_log (
	log_id UUID PRIMARY KEY,
	user_id UUID,
	match_id UUID,
	seat_id UUID,
	action TEXT NOT NULL,
	success BOOL NOT NULL,
	fail_reason TEXT,
	ip TEXT NOT NULL DEFAULT '',
	user_agent TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW',
	dedupe_key TEXT NOT NULL DEFAULT ''
);
`
