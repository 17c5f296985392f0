package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create run records table
			CREATE TABLE app_run_records (
				app_id VARCHAR(255) PRIMARY KEY,
				date CHAR(8) NOT NULL,
				status VARCHAR(20) NOT NULL CHECK (status IN ('wait', 'running', 'success', 'fail')),
				reset VARCHAR(100) NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_app_run_records_status ON app_run_records(status);
		`,
		2: `
			-- Create operation history table
			CREATE TABLE operation_records (
				id VARCHAR(255) PRIMARY KEY,
				run_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				success BOOLEAN NOT NULL,
				status VARCHAR(255) NOT NULL DEFAULT '',
				error_message TEXT NOT NULL DEFAULT '',
				rounds INT NOT NULL DEFAULT 0,
				retries INT NOT NULL DEFAULT 0,
				duration_ms BIGINT NOT NULL DEFAULT 0,
				finished_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_operation_records_run_id ON operation_records(run_id, finished_at);
			CREATE INDEX idx_operation_records_finished_at ON operation_records(finished_at DESC);
		`,
	}
}
