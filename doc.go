/*
Package vtab implements the virtual table side of a relational host's
table-extension protocol. A user-supplied table type participates in the
host's query execution as if it were a native table: the host negotiates an
access plan with the table, opens cursors over it, and may route row
mutations and transaction hooks to it.

We implement:

1. Modules, static per-table-type descriptors of the operations a table
supports, built once and looked up by name in a connection-scoped registry.

2. Instances, live connected/created tables, and Cursors, per-query scans
over an instance. Both are handed to the host as opaque generation-checked
tokens, so a call on a destroyed handle is detected rather than corrupting
memory.

3. Plan negotiation: the host describes candidate predicate constraints and
a requested ordering in an IndexInfo, the table picks a plan, reports its
cost, and assigns each accepted constraint a consumption order at which the
constraint's runtime value is later delivered to the cursor's filter call.

4. Transactions with savepoints, function overloads consulted during
planning, ALTER TABLE renames, and shadow-name protection, each routed only
when the table type declares the capability and the host version supports
the hook.

# Host boundary

The host is opaque to this package. It is consulted through the Host
interface for its runtime version and for schema declaration during
connect/create, and it drives everything else by calling methods on Conn
with handles it obtained earlier. All optional protocol features are gated
by a Caps value resolved once at registration: querying a feature the host
does not support yields an explicit unsupported result, never undefined
behavior.

Every call is synchronous, and the host never invokes two operations on the
same instance or cursor concurrently, so Conn performs no internal locking;
sharing a Conn across threads requires external synchronization by the
caller. Auxiliary data attached to a registration is shared by all of the
registration's instances and must be read-only or externally synchronized.
*/
package vtab
