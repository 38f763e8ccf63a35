package db

// SchemaVersion is the current database schema version
const SchemaVersion = 3

// Rows are synced exactly when they carry a remote ID.
const syncPair = `
    sincronizado INTEGER NOT NULL DEFAULT 0,
    firebase_id TEXT UNIQUE,
    CHECK ((sincronizado = 1 AND firebase_id IS NOT NULL AND firebase_id <> '')
        OR (sincronizado = 0 AND firebase_id IS NULL))`

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nombre TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE COLLATE NOCASE,
    password_hash TEXT NOT NULL DEFAULT '',
    telefono TEXT NOT NULL DEFAULT '',
    created_at TEXT NOT NULL,` + syncPair + `
);

CREATE TABLE IF NOT EXISTS roles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nombre TEXT NOT NULL UNIQUE,
    descripcion TEXT NOT NULL DEFAULT '',` + syncPair + `
);

CREATE TABLE IF NOT EXISTS permissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nombre TEXT NOT NULL UNIQUE,
    descripcion TEXT NOT NULL DEFAULT '',` + syncPair + `
);

CREATE TABLE IF NOT EXISTS role_permissions (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
    permission_id INTEGER NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,` + syncPair + `,
    UNIQUE(role_id, permission_id)
);

CREATE TABLE IF NOT EXISTS user_roles (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    role_id INTEGER NOT NULL REFERENCES roles(id) ON DELETE CASCADE,` + syncPair + `,
    UNIQUE(user_id, role_id)
);

CREATE TABLE IF NOT EXISTS categories (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nombre TEXT NOT NULL UNIQUE,
    descripcion TEXT NOT NULL DEFAULT '',` + syncPair + `
);

CREATE TABLE IF NOT EXISTS services (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    nombre TEXT NOT NULL,
    descripcion TEXT NOT NULL DEFAULT '',
    category_id INTEGER REFERENCES categories(id) ON DELETE SET NULL,
    precio INTEGER NOT NULL DEFAULT 0,
    imagen TEXT NOT NULL DEFAULT '',
    activo INTEGER NOT NULL DEFAULT 1,` + syncPair + `
);

CREATE TABLE IF NOT EXISTS offers (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    service_id INTEGER NOT NULL REFERENCES services(id) ON DELETE CASCADE,
    titulo TEXT NOT NULL,
    descuento INTEGER NOT NULL,
    precio_oferta INTEGER NOT NULL,
    inicio TEXT NOT NULL DEFAULT '',
    fin TEXT NOT NULL DEFAULT '',
    activa INTEGER NOT NULL DEFAULT 1,` + syncPair + `
);

CREATE TABLE IF NOT EXISTS purchases (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id),
    service_id INTEGER NOT NULL REFERENCES services(id),
    offer_id INTEGER REFERENCES offers(id),
    monto INTEGER NOT NULL,
    estado TEXT NOT NULL DEFAULT 'pending',
    created_at TEXT NOT NULL,` + syncPair + `
);

CREATE TABLE IF NOT EXISTS notifications (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    titulo TEXT NOT NULL,
    mensaje TEXT NOT NULL DEFAULT '',
    leida INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL,` + syncPair + `
);

CREATE INDEX IF NOT EXISTS idx_users_pending ON users(sincronizado);
CREATE INDEX IF NOT EXISTS idx_services_category ON services(category_id);
CREATE INDEX IF NOT EXISTS idx_purchases_user ON purchases(user_id);
CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, leida);

CREATE TABLE IF NOT EXISTS schema_info (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
